package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Drop removes every table and view after confirmation on in, unless yes.
func Drop(env *Env, yes bool, in io.Reader, out io.Writer) (bool, error) {
	if !yes {
		fmt.Fprintf(out, "⚠️ 将删除 %s 中的全部数据, 确认请输入 yes: ", env.Config.Core.DB)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(line)) != "yes" {
			fmt.Fprintln(out, "已取消")
			return false, nil
		}
	}

	if err := env.Manager.Drop(); err != nil {
		return false, err
	}
	fmt.Fprintln(out, "🗑️ 数据已删除")
	return true, nil
}
