// Command seeduser creates a login account directly in the identity store.
// It only runs when seeding is enabled in the server configuration.
//
//	SK_ALLOW_SEED_LOGIN=true seeduser -email admin@example.com -roles admin,user
package main

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout io.Writer) error {
	cfg := config.LoadConfig()
	if !cfg.AllowSeedLogin {
		return errSeedingDisabled
	}

	fs := flag.NewFlagSet("seeduser", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email")
	roles := fs.String("roles", "", "comma separated roles (default user)")
	unconfirmed := fs.Bool("unconfirmed", false, "create the account with an unconfirmed email")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-roles", "-unconfirmed"})); err != nil {
		return err
	}

	reader := bufio.NewReader(stdin)
	fd := int(stdin.Fd())

	pw, err := getPassword(fd, reader, "Password: ", stdout)
	if err != nil {
		return err
	}
	if isTerminal(fd) {
		again, err := getPassword(fd, reader, "Repeat password: ", stdout)
		if err != nil {
			return err
		}
		same := bytes.Equal(pw, again)
		common.WipeByteArray(again)
		if !same {
			common.WipeByteArray(pw)
			return fmt.Errorf("passwords do not match")
		}
	}

	db, err := sql.Open(repomanager.DriverName, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	u, err := seedUser(ctx, rm.Users(db), password.NewHasher(password.DefaultParams), seedRequest{
		Email:     *email,
		Password:  pw,
		Roles:     *roles,
		Confirmed: !*unconfirmed,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "created %s (%s) roles=%v confirmed=%t\n", u.Email, u.ID, u.Roles, u.EmailConfirmed)
	return nil
}
