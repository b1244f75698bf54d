package cmd

import (
	"context"
	"fmt"
)

func Download(ctx context.Context, env *Env, threads int, force bool) error {
	threads = threadsOr(threads, env.Config.Crawler.PoolSize)
	if force {
		fmt.Println("🔁 忽略本地数据, 重新下载全部历史")
	}
	fmt.Printf("🐢 开始下载行情 (线程 %d)\n", threads)

	full, err := env.Manager.PickData(ctx, threads, force)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}

	n := len(env.Manager.ListAvailable())
	if !full {
		fmt.Printf("⚠️ 部分股票下载失败, 可重新执行 download 补齐, 当前可用 %d 只\n", n)
		return nil
	}
	fmt.Printf("🚀 下载完成, 可用股票 %d 只\n", n)
	return nil
}
