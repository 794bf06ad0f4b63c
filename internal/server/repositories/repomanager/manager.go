package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/blacklist"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/loginattempts"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// constructors serve both *sql.DB and a *sql.Tx from dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	LoginAttempts(db dbx.DBTX) loginattempts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Blacklist(db dbx.DBTX) blacklist.Repository
}
