package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sealkv/sealkv/lib/crypto/aead"
	"github.com/sealkv/sealkv/lib/crypto/keyring"
	"github.com/sealkv/sealkv/lib/store/fstore"
	libutil "github.com/sealkv/sealkv/lib/util"
	"github.com/sealkv/sealkv/lib/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupVaultFlags adds the common vault construction flags to a command
func SetupVaultFlags(cmd *cobra.Command) {
	key := "file"
	cmd.PersistentFlags().String(key, "sealkv.state.json", WrapString("Path of the durable store file"))

	key = "keyring"
	cmd.PersistentFlags().String(key, ".sealkv-keys", WrapString("Directory holding the encryption key material"))

	key = "namespace"
	cmd.PersistentFlags().String(key, "default", WrapString("Vault namespace, scopes key aliases and metrics"))

	key = "policy"
	cmd.PersistentFlags().String(key, "plaintext", WrapString("Memory policy for encrypted values (plaintext, encrypted, encrypted-timed-cache)"))

	key = "cipher"
	cmd.PersistentFlags().String(key, string(aead.SuiteAESGCM), WrapString("AEAD cipher suite (aesgcm, xchacha20poly1305)"))

	key = "key-size"
	cmd.PersistentFlags().Int(key, 256, WrapString("Encryption key size in bits (128 or 256, aesgcm only)"))

	key = "require-unlocked"
	cmd.PersistentFlags().Bool(key, false, WrapString("Create encryption keys that are only usable while the device is unlocked"))

	key = "coalesce-window-ms"
	cmd.PersistentFlags().Int(key, 16, WrapString("Write coalescing window in milliseconds"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sealkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// OpenVault builds a vault from the bound configuration. The returned
// cleanup func flushes pending writes and releases all resources.
func OpenVault() (vault.IVault, func(), error) {
	if level, err := libutil.ParseLogLevel(viper.GetString("log-level")); err == nil {
		libutil.SetGlobalLogLevel(level)
	}

	st, err := fstore.NewFileStore(viper.GetString("file"))
	if err != nil {
		return nil, nil, err
	}

	ring, err := keyring.NewFileKeyring(viper.GetString("keyring"))
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	engine, err := aead.NewEngine(ring, &aead.Options{
		Suite:           aead.Suite(viper.GetString("cipher")),
		KeySize:         viper.GetInt("key-size"),
		RequireUnlocked: viper.GetBool("require-unlocked"),
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	policy, err := vault.ParseMemoryPolicy(viper.GetString("policy"))
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	opts := vault.DefaultOptions()
	opts.Namespace = viper.GetString("namespace")
	opts.MemoryPolicy = policy
	opts.RequireUnlockedDevice = viper.GetBool("require-unlocked")
	opts.CoalesceWindow = time.Duration(viper.GetInt("coalesce-window-ms")) * time.Millisecond

	v, err := vault.New(st, engine, nil, opts)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := v.Sync(ctx); err != nil {
			fmt.Printf("warning: flush before exit failed: %v\n", err)
		}
		v.Close()
		st.Close()
	}
	return v, cleanup, nil
}
