package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの掃除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はサブコマンドを登録したルートコマンドを返す。
// サブコマンドを省略した場合はserveとして動作する。
// ログの出力先はwに固定する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "microblog",
		Short: "フォロー型マイクロブログのサーバー",
		Long: `microblog はユーザー登録、フォロー、投稿、タイムライン表示を提供するWebサーバーです。

Examples:
  microblog                 # serveと同じ
  microblog migrate         # スキーマを最新化
  microblog worker          # 期限切れセッションを定期削除
  microblog healthcheck     # /health を確認（Dockerヘルスチェック用）`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(w, CommandServe)
		},
	}

	root.AddCommand(
		newModeCommand(w, CommandServe, "APIサーバーを起動する"),
		newModeCommand(w, CommandWorker, "期限切れセッションを定期的に削除する"),
		newModeCommand(w, CommandMigrate, "未適用のマイグレーションを適用する"),
		newHealthcheckCommand(),
	)
	return root
}

func newModeCommand(w io.Writer, mode Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(w, mode)
		},
	}
}

// healthcheck は軽量サブコマンドのため、設定の読み込みとログ初期化を行わない。
func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "ローカルの /health エンドポイントを確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(port)
		},
	}

	defaultPort := os.Getenv("SERVER_PORT")
	if defaultPort == "" {
		defaultPort = "8080"
	}
	cmd.Flags().StringVarP(&port, "port", "p", defaultPort, "確認先のポート")
	return cmd
}
