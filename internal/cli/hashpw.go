package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/stockcore/password"
)

func NewHashPasswordCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin for the users file",
		Long: `Read one password line from stdin and print its argon2id hash,
ready to paste into the password_hash field of USERS_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHashPassword(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runHashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return errors.New("empty password")
	}
	h, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	hash, err := h.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
