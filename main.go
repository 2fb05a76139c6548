// Command tinlens はSNS投稿やWebページの内容を抽出・文字起こしし、
// ニュース判定、ファクトチェック、投稿者信頼度の算出を行うAPIサーバーとCLI。
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hitoshi/tinlens/internal/app"
)

func main() {
	args := os.Args[1:]

	// analyzeは結果のJSONを標準出力に書くため、ログは標準エラーに出す
	var logOut io.Writer = os.Stdout
	if app.ParseCommand(args) == app.CommandAnalyze {
		logOut = os.Stderr
	}

	if err := app.Run(logOut, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
