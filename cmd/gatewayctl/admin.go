package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
)

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke a token for the rest of its lifetime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			if err := s.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect or change the permission rules",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the rule table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			rules, err := s.GetRules(cmd.Context())
			if err != nil {
				return err
			}
			printRules(cmd, rules)
			return nil
		},
	}

	var file string
	var replace bool
	set := &cobra.Command{
		Use:   "set [TYPE=ROLE,ROLE ...]",
		Short: "Merge rules into the table, or replace it with --replace",
		Long: `Rules are given as TYPE=ROLE,ROLE arguments or read from a YAML file with
--file. An empty role list (TYPE=) removes the type.`,
		Example: `  gatewayctl rules set broadcast=teacher,admin
  gatewayctl rules set --file rules.yaml --replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := rulesFromArgs(args)
			if err != nil {
				return err
			}
			if file != "" {
				rs, fileReplace, err := policy.LoadFile(file)
				if err != nil {
					return err
				}
				replace = replace || fileReplace
				for t, roles := range rs {
					names := make([]string, len(roles))
					for i, r := range roles {
						names[i] = string(r)
					}
					rules[t] = names
				}
			}
			if len(rules) == 0 {
				return fmt.Errorf("no rules given")
			}

			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			out, err := s.UpdateRules(cmd.Context(), rules, replace)
			if err != nil {
				return err
			}
			printRules(cmd, out)
			return nil
		},
	}
	set.Flags().StringVarP(&file, "file", "f", "", "YAML rules file")
	set.Flags().BoolVar(&replace, "replace", false, "replace the whole table")

	cmd.AddCommand(get, set)
	return cmd
}

func rulesFromArgs(args []string) (gatewaysdk.Rules, error) {
	rules := gatewaysdk.Rules{}
	for _, a := range args {
		t, roles, ok := strings.Cut(a, "=")
		if !ok || t == "" {
			return nil, fmt.Errorf("rule %q must look like TYPE=ROLE,ROLE", a)
		}
		names := []string{}
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				names = append(names, r)
			}
		}
		rules[t] = names
	}
	return rules, nil
}

func printRules(cmd *cobra.Command, rules gatewaysdk.Rules) {
	types := make([]string, 0, len(rules))
	for t := range rules {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", t, strings.Join(rules[t], ","))
	}
}

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print gateway counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			m, err := s.Metrics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}

func newConnectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conns"},
		Short:   "List live connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			conns, err := s.Connections(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), conns)
		},
	}
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var req gatewaysdk.CreateUserRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			u, err := s.CreateUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	create.Flags().StringVarP(&req.Username, "username", "u", "", "username")
	create.Flags().StringVarP(&req.Password, "password", "p", "", "initial password")
	create.Flags().StringVarP(&req.Role, "role", "r", "student", "student, teacher or admin")
	create.Flags().BoolVar(&req.EnableMFA, "mfa", false, "enable TOTP and print the provisioning URI")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func newBroadcastCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "broadcast PAYLOAD",
		Short: "Send a JSON payload to every live connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[0])) {
				return fmt.Errorf("payload must be valid JSON")
			}
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()
			n, err := s.Broadcast(cmd.Context(), gatewaysdk.BroadcastRequest{
				Payload: json.RawMessage(args[0]),
				Role:    role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d connections\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "only deliver to connections holding this role")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the readiness report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := newClient().Readiness(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
}
