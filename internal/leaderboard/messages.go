package leaderboard

import "fmt"

const (
	CommandLeaderboard = "leaderboard"
	optionLimit        = "limit"

	slashCommandLeaderboardDescription = "ボイスチャンネルの滞在時間ランキングを表示します。"
	slashOptionLimitDescription        = "表示する人数（1〜20）"

	messageEphemeralWrongGuild     = ":warning: **このサーバーでは実行できません。**"
	messageEphemeralUnknownCommand = ":warning: **不明なコマンドです。**"
	messageLedgerUnavailable       = ":warning: **ランキングの取得に失敗しました。** 時間をおいて再度お試しください。"
	messageLeaderboardEmpty        = ":hourglass: **まだ記録がありません。** ボイスチャンネルに参加すると集計が始まります。"
	messageRenderFailed            = "-# 画像の生成に失敗したため、テキストのみ表示しています。"
	messageUnexpectedFailure       = ":warning: **不明なエラーが発生しました。**"

	messageLeaderboardTitleFormat = ":trophy: **ボイスチャンネル滞在時間 TOP %d**"
	messageRankingLineFormat      = "%s **%s**  `%s`"
)

func leaderboardTitle(n int) string {
	return fmt.Sprintf(messageLeaderboardTitleFormat, n)
}

func rankMarker(rank int) string {
	switch rank {
	case 1:
		return ":first_place:"
	case 2:
		return ":second_place:"
	case 3:
		return ":third_place:"
	default:
		return fmt.Sprintf("**%d.**", rank)
	}
}
