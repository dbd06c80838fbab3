package main

import (
	"fmt"
	"os"

	"github.com/lib/pq"
	flag "github.com/spf13/pflag"

	"github.com/kabili207/pda-messenger/pkg/auth"
	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

func main() {
	length := flag.IntP("length", "l", 16, "Length of the password in bytes (will be hex encoded, so output is 2x this)")
	user := flag.StringP("user", "u", "", "Account name; when set an INSERT statement is printed")
	dsn := flag.String("dsn", "", "Postgres connection string; with --user the account is added directly")
	name := flag.String("name", "", "Display name for the account")
	station := flag.String("station", "", "Restrict the account to one station")
	superuser := flag.Bool("superuser", false, "Allow the account to use the admin pages")
	flag.Parse()

	// Generate random password
	password, err := auth.RandomHex(*length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating password: %v\n", err)
		os.Exit(1)
	}

	// Generate hash and salt
	hash, salt, err := auth.GenerateHashAndSalt(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating salt: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Password: %s\n", password)
	fmt.Printf("Salt:     %s\n", salt)
	fmt.Printf("Hash:     %s\n", hash)

	if *user == "" {
		return
	}
	if *dsn != "" {
		if err := addAccount(*dsn, &models.Account{
			UserName:     *user,
			DisplayName:  optional(*name),
			PasswordHash: hash,
			Salt:         salt,
			Station:      (*models.StationID)(optional(*station)),
			IsSuperuser:  *superuser,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding account: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nAccount %s added\n", *user)
		return
	}
	fmt.Println()
	fmt.Printf("INSERT INTO accounts (username, display_name, password_hash, salt, station, is_superuser)\nVALUES (%s, %s, %s, %s, %s, %t);\n",
		pq.QuoteLiteral(*user),
		nullable(*name),
		pq.QuoteLiteral(hash),
		pq.QuoteLiteral(salt),
		nullable(*station),
		*superuser,
	)
}

func nullable(s string) string {
	if s == "" {
		return "NULL"
	}
	return pq.QuoteLiteral(s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func addAccount(dsn string, account *models.Account) error {
	stores := store.NewMemoryStores()
	db, err := stores.OpenAccounts(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	existing, err := stores.Accounts.GetByUserName(account.UserName)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("account %q already exists", account.UserName)
	}
	return stores.Accounts.AddAccount(account)
}
