package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "gatewayctl",
	Short:         "Operate a tabgate realtime gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .gatewayctl.yml)")
	flags.String("server", "http://localhost:8080", "gateway base URL")
	flags.String("token-file", defaultTokenFile(), "file holding the token pair written by login")
	_ = viper.BindPFlag("server", flags.Lookup("server"))
	_ = viper.BindPFlag("token-file", flags.Lookup("token-file"))

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newBootstrapCmd(),
		newRevokeCmd(),
		newRulesCmd(),
		newMetricsCmd(),
		newConnectionsCmd(),
		newUsersCmd(),
		newBroadcastCmd(),
		newHealthCmd(),
		newConnectCmd(),
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gatewayctl")
	}

	viper.SetEnvPrefix("GATEWAYCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env still apply.
	_ = viper.ReadInConfig()
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gatewayctl-token.json"
	}
	return filepath.Join(dir, "gatewayctl", "token.json")
}

func newClient() *gatewaysdk.Client {
	return gatewaysdk.NewClient(viper.GetString("server"))
}

// storedTokens is the token file. ExpiresAt is absolute so a later
// invocation knows whether the access token is still good.
type storedTokens struct {
	gatewaysdk.TokenResponse
	ExpiresAt time.Time `json:"expires_at"`
}

func saveTokens(s *gatewaysdk.Session) error {
	access, refresh := s.Tokens()
	st := storedTokens{
		TokenResponse: gatewaysdk.TokenResponse{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			Subject:      s.Subject(),
			Role:         s.Role(),
		},
		ExpiresAt: s.ExpiresAt().UTC(),
	}

	path := viper.GetString("token-file")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func loadTokens() (gatewaysdk.TokenResponse, error) {
	var st storedTokens
	data, err := os.ReadFile(viper.GetString("token-file"))
	if errors.Is(err, os.ErrNotExist) {
		return st.TokenResponse, errors.New("not logged in, run gatewayctl login first")
	}
	if err != nil {
		return st.TokenResponse, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st.TokenResponse, fmt.Errorf("read token file: %w", err)
	}
	st.ExpiresIn = max(int(time.Until(st.ExpiresAt).Seconds()), 0)
	return st.TokenResponse, nil
}

// session restores the stored login. Call persist once done so a refreshed
// pair is kept.
func session() (*gatewaysdk.Session, func(), error) {
	tr, err := loadTokens()
	if err != nil {
		return nil, nil, err
	}
	s := newClient().NewSession(tr)
	persist := func() {
		if access, _ := s.Tokens(); access == tr.AccessToken {
			return
		}
		if err := saveTokens(s); err != nil {
			fmt.Fprintln(os.Stderr, "warning: could not save refreshed tokens:", err)
		}
	}
	return s, persist, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
