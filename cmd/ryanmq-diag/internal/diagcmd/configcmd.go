package diagcmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ryanMQ/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved client and producer-default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := config.LoadClientConfiguration(v)
		defaults := config.LoadProducerDefaults(v)

		out := struct {
			Client   config.ClientConfiguration `json:"client"`
			Producer config.ProducerDefaults    `json:"producer_defaults"`
		}{client, defaults}

		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}
