package main

import (
	"encoding/json"
	"fmt"
	"os"

	"alcyxob/notes-app/internal/service"

	"github.com/spf13/cobra"
)

func deadLettersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Inspect and replay watermark jobs that failed for good",
	}

	var limit int64
	list := &cobra.Command{
		Use:   "list",
		Short: "Print dead letters that were not replayed yet, as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, svc, err := openDeadLetters(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			letters, err := svc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(letters)
		},
	}
	list.Flags().Int64VarP(&limit, "limit", "n", 50, "maximum entries")

	replay := &cobra.Command{
		Use:   "replay [id]",
		Short: "Enqueue a dead-lettered job again with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, svc, err := openDeadLetters(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			jobID, err := svc.Replay(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("replayed %s as job %s\n", args[0], jobID)
			return nil
		},
	}

	cmd.AddCommand(list, replay)
	return cmd
}

func openDeadLetters(configPath string) (*app, service.DeadLetterService, error) {
	a, err := loadApp(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := a.openDatabases(); err != nil {
		a.close()
		return nil, nil, err
	}
	if a.cfg.Queue.Driver != "kafka" {
		a.close()
		return nil, nil, fmt.Errorf("replaying from the CLI needs the kafka queue driver, got %q", a.cfg.Queue.Driver)
	}
	if err := a.openProducer(); err != nil {
		a.close()
		return nil, nil, err
	}
	return a, service.NewDeadLetterService(a.deadLetters(), a.store.Versions(), a.producer, a.log), nil
}
