package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Mmx233/QLink/credential"
	"github.com/Mmx233/QLink/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	storePath = tools.Env("CREDENTIAL_PATH", "credentials.db")
	key       string

	Cmd = &cobra.Command{
		Use:   "credential",
		Short: "Manage the local credential store",
		Args:  cobra.NoArgs,
	}

	setCmd = &cobra.Command{
		Use:   "set [token|-]",
		Short: "Store an access token, read from stdin when the argument is - or missing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := "-"
			if len(args) == 1 {
				token = args[0]
			}
			if token == "-" {
				var err error
				if token, err = readToken(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			return Set(cmd.Context(), storePath, key, token)
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Delete(cmd.Context(), storePath, key)
		},
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&storePath, "path", "p", storePath, "path of the sqlite credential store")
	Cmd.PersistentFlags().StringVarP(&key, "key", "k", "default", "credential key")
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(deleteCmd)
}

// Set stores token under key in the sqlite store at path.
func Set(ctx context.Context, path, key, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	return withStore(ctx, path, func(ctx context.Context, store *credential.SQLiteStore) error {
		if err := store.Set(ctx, key, token); err != nil {
			return err
		}
		log.Info().Str("com", "credential").Str("path", path).Str("key", key).Msg("credential stored")
		return nil
	})
}

// Delete removes key from the sqlite store at path.
func Delete(ctx context.Context, path, key string) error {
	return withStore(ctx, path, func(ctx context.Context, store *credential.SQLiteStore) error {
		if err := store.Delete(ctx, key); err != nil {
			return err
		}
		log.Info().Str("com", "credential").Str("path", path).Str("key", key).Msg("credential deleted")
		return nil
	})
}

func withStore(ctx context.Context, path string, fn func(context.Context, *credential.SQLiteStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := credential.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
