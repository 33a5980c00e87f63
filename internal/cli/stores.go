package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

// tokenEnv supplies the access token when --token is not given.
const tokenEnv = "SHELFWISE_TOKEN"

// NewStoreCommand creates the store command group.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage connected stores",
	}
	cmd.AddCommand(newStoreConnectCommand(rootOpts))
	cmd.AddCommand(newStoreDisconnectCommand(rootOpts))
	cmd.AddCommand(newStoreListCommand(rootOpts))
	return cmd
}

func newStoreConnectCommand(opts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "connect <store-id>",
		Short: "Record a store and its access token",
		Long: `Record a store and the access token produced by its authorization flow.
Reconnecting a store replaces its token. The token may also be supplied
through ` + tokenEnv + `.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			storeID := strings.TrimSpace(args[0])
			if token == "" {
				token = opts.getenv(tokenEnv)
			}
			if storeID == "" || token == "" {
				return formatter.fail(ExitCommandError, ErrCodeConfig, "store id and token are required", nil, nil)
			}

			st, err := opts.openStore()
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
			}
			defer closeStore(opts.Logger, st)

			if err := st.UpsertStore(cmd.Context(), storeID, token); err != nil {
				return formatter.fail(ExitFailure, ErrCodeStorage, "failed to connect store", err, nil)
			}
			opts.Logger.Info("store connected", "store_id", storeID)
			return formatter.Success(storeStatus{StoreID: storeID, Authorized: true})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token (or "+tokenEnv+")")
	return cmd
}

func newStoreDisconnectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "disconnect <store-id>",
		Short:         "Forget a store's access token, keeping its data",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			st, err := opts.openStore()
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
			}
			defer closeStore(opts.Logger, st)

			err = st.DisconnectStore(cmd.Context(), args[0])
			if errors.Is(err, store.ErrStoreNotFound) {
				return formatter.fail(ExitCommandError, ErrCodeStoreUnknown, "unknown store "+args[0], nil, nil)
			}
			if err != nil {
				return formatter.fail(ExitFailure, ErrCodeStorage, "failed to disconnect store", err, nil)
			}
			opts.Logger.Info("store disconnected", "store_id", args[0])
			return formatter.Success(storeStatus{StoreID: args[0], Authorized: false})
		},
	}
}

func newStoreListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List connected stores",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			st, err := opts.openStore()
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
			}
			defer closeStore(opts.Logger, st)

			stores, err := st.ListStores(cmd.Context())
			if err != nil {
				return formatter.fail(ExitFailure, ErrCodeStorage, "failed to list stores", err, nil)
			}
			list := make(storeList, 0, len(stores))
			for _, s := range stores {
				list = append(list, storeStatus{StoreID: s.ID, Authorized: s.Authorized(), ConnectedAt: model.FormatTimestamp(s.CreatedAt)})
			}
			return formatter.Success(list)
		},
	}
}

type storeStatus struct {
	StoreID     string `json:"store_id"`
	Authorized  bool   `json:"authorized"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

func (s storeStatus) String() string {
	state := "authorized"
	if !s.Authorized {
		state = "not authorized"
	}
	return fmt.Sprintf("%s: %s", s.StoreID, state)
}

type storeList []storeStatus

func (l storeList) String() string {
	if len(l) == 0 {
		return "no stores"
	}
	lines := make([]string, len(l))
	for i, s := range l {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}

func (o *RootOptions) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}
