package main

import (
	"fmt"

	"botbridge/internal/config"

	"github.com/spf13/cobra"
)

// checkCmd validates the configuration without binding anything.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and adapter credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Warn("config not found, checking environment defaults", "path", configPath)
				cfg = config.Defaults()
			}

			clients, err := buildClients(cfg)
			if err != nil {
				return err
			}
			if len(clients) == 0 {
				fmt.Println("no adapters enabled")
				return nil
			}

			failed := 0
			for _, c := range clients {
				if err := c.Adapter().Validate(); err != nil {
					fmt.Printf("✗ %s: %v\n", c.Adapter().Name(), err)
					failed++
					continue
				}
				fmt.Printf("✓ %s\n", c.Adapter().Name())
			}
			if failed > 0 {
				return fmt.Errorf("%d adapter(s) misconfigured", failed)
			}
			return nil
		},
	}
}
