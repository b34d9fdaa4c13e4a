package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sealkv/sealkv/cmd/util"
	"github.com/spf13/cobra"
)

// parseValue converts a command-line argument into the value to store.
// Numbers and booleans are detected automatically unless a type is forced.
func parseValue(raw, typ string) (any, error) {
	switch typ {
	case "string":
		return raw, nil
	case "int":
		return strconv.ParseInt(raw, 10, 64)
	case "float":
		return strconv.ParseFloat(raw, 64)
	case "bool":
		return strconv.ParseBool(raw)
	case "null":
		return nil, nil
	case "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid json value: %w", err)
		}
		return v, nil
	case "auto":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("invalid type %q, must be one of auto, string, int, float, bool, json, null", typ)
	}
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			encrypted, _ := cmd.Flags().GetBool("encrypted")
			typ, _ := cmd.Flags().GetString("type")

			value, err := parseValue(args[1], typ)
			if err != nil {
				return err
			}

			if err := kvVault.Put(cmd.Context(), key, value, encrypted); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			encrypted, _ := cmd.Flags().GetBool("encrypted")
			def, _ := cmd.Flags().GetString("default")

			value, err := kvVault.Get(cmd.Context(), key, def, encrypted)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%v\n", key, value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			encrypted, _ := cmd.Flags().GetBool("encrypted")

			if err := kvVault.Delete(cmd.Context(), key, encrypted); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			encrypted, _ := cmd.Flags().GetBool("encrypted")

			value, err := kvVault.Get(cmd.Context(), key, nil, encrypted)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", key, value != nil)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Wipes the vault including all encryption keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvVault.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Streams the values for a key until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			encrypted, _ := cmd.Flags().GetBool("encrypted")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ch, err := kvVault.Watch(ctx, key, encrypted)
			if err != nil {
				return err
			}

			for value := range ch {
				fmt.Printf("key=%s, value=%v\n", key, value)
			}
			return nil
		},
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Prints the vault metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// touch the vault so the cold load runs at least once
			if _, err := kvVault.Get(cmd.Context(), "metrics-probe", nil, false); err != nil {
				return err
			}
			metrics.WritePrometheus(os.Stdout, false)
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{setCmd, getCmd, delCmd, hasCmd, watchCmd} {
		c.Flags().Bool("encrypted", false, util.WrapString("Operate on the encrypted slot of the key"))
	}
	setCmd.Flags().String("type", "auto", util.WrapString("Value type (auto, string, int, float, bool, json, null)"))
	getCmd.Flags().String("default", "", util.WrapString("Default returned when the key is absent"))
}
