package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/shelfbot/internal/engine"
	"github.com/untoldecay/shelfbot/internal/queue"
	"github.com/untoldecay/shelfbot/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Enqueue a catalog sync job",
	Long: `Insert a catalog sync job and push it onto the queue for the worker
to service. A no-op when a sync job is already queued or running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		q, err := queue.NewRedisQueue(cfg.RedisURL, queue.WithKey(cfg.QueueKey))
		if err != nil {
			return err
		}
		defer q.Close()

		jobID, err := engine.EnqueueSync(ctx, st, q, cfg.RootPath())
		if err != nil {
			return err
		}
		if jobID == 0 {
			fmt.Println("sync already in flight")
			return nil
		}
		fmt.Printf("sync job %d enqueued for %s\n", jobID, cfg.RootPath())
		return nil
	},
}
