package app

import (
	"flag"
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandFetch は動画・コメントのフェッチを実行する。
	CommandFetch Command = "fetch"
	// CommandClassify は未分類動画の分類を実行する。
	CommandClassify Command = "classify"
	// CommandAggregate はパートナー別集計を実行する。
	CommandAggregate Command = "aggregate"
	// CommandExport はレポート出力を実行する。
	CommandExport Command = "export"
	// CommandRun は全ステージ（fetch→classify→aggregate→export）を順に実行する。
	CommandRun Command = "run"
	// CommandStatus はタスク種別ごとの進捗と保存件数を表示する。
	CommandStatus Command = "status"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandServe はHTTPサーバーモードで起動する。
	CommandServe Command = "serve"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空の場合はCommandRunを返す。サポート外のコマンドはエラー。
func ParseCommand(args []string) (Command, []string, error) {
	if len(args) == 0 {
		return CommandRun, nil, nil
	}

	switch Command(args[0]) {
	case CommandFetch, CommandClassify, CommandAggregate, CommandExport,
		CommandRun, CommandStatus, CommandMigrate, CommandServe:
		return Command(args[0]), args[1:], nil
	default:
		return "", nil, fmt.Errorf("不明なサブコマンドです: %s", args[0])
	}
}

// Options はサブコマンド共通のフラグ値を保持する。
type Options struct {
	// Days は処理対象の遡及日数。0以下は設定既定値を使う。
	Days int
	// All は遡及期間を無視して全期間を対象にする。
	All bool
	// Full は完了済みフェッチをリセットして先頭から取得し直す。
	Full bool
	// NoFallback は外部推論サービスへのフォールバックを無効化する。
	NoFallback bool
	// Reclassify は分類済み動画も対象に再分類する。
	Reclassify bool
	// Out はレポートの出力先ディレクトリ。空は設定既定値。
	Out string
	// Upload はレポートのクラウドアップロードを有効化する。
	Upload bool
	// NoComments はコメントフェッチを省略する。
	NoComments bool
	// Threshold はルール分類器の確信度しきい値。負値は設定既定値。
	Threshold float64
}

// ParseOptions はサブコマンドのフラグを解析する。
func ParseOptions(cmd Command, args []string, errOut io.Writer) (*Options, error) {
	fs := flag.NewFlagSet(string(cmd), flag.ContinueOnError)
	fs.SetOutput(errOut)

	opts := &Options{}
	fs.IntVar(&opts.Days, "days", 0, "処理対象の遡及日数（0は既定値）")
	fs.BoolVar(&opts.All, "all", false, "全期間を対象にする")
	fs.BoolVar(&opts.Full, "full", false, "完了済みフェッチをリセットして先頭から取得")
	fs.BoolVar(&opts.NoFallback, "no-fallback", false, "外部推論フォールバックを無効化")
	fs.BoolVar(&opts.Reclassify, "reclassify", false, "分類済み動画も再分類する")
	fs.StringVar(&opts.Out, "out", "", "レポートの出力先ディレクトリ")
	fs.BoolVar(&opts.Upload, "upload", false, "レポートをクラウドにアップロード")
	fs.BoolVar(&opts.NoComments, "no-comments", false, "コメントフェッチを省略")
	fs.Float64Var(&opts.Threshold, "threshold", -1, "ルール分類の確信度しきい値（負値は既定値）")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}
