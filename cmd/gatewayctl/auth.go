package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
)

func newLoginCmd() *cobra.Command {
	var username, password, otp string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("GATEWAYCTL_PASSWORD")
			}
			s, err := newClient().Login(cmd.Context(), username, password, otp)
			var apiErr *gatewaysdk.APIError
			if errors.As(err, &apiErr) && apiErr.Code == gatewaysdk.ErrorCodeMFARequired {
				return errors.New("this account needs a one-time code, pass --otp")
			}
			if err != nil {
				return err
			}

			if err := saveTokens(s); err != nil {
				return fmt.Errorf("save tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", s.Subject(), s.Role())
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or GATEWAYCTL_PASSWORD)")
	cmd.Flags().StringVar(&otp, "otp", "", "TOTP code for MFA accounts")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored tokens and forget them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := session()
			if err != nil {
				return err
			}
			if err := s.Logout(cmd.Context()); err != nil {
				return err
			}
			return os.Remove(viper.GetString("token-file"))
		},
	}
}

func newBootstrapCmd() *cobra.Command {
	var username, password, token string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin on an empty gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := newClient().Bootstrap(cmd.Context(), token, gatewaysdk.BootstrapRequest{
				Username: username,
				Password: password,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password")
	cmd.Flags().StringVar(&token, "bootstrap-token", os.Getenv("GATEWAYCTL_BOOTSTRAP_TOKEN"), "bootstrap token, when the gateway requires one")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
