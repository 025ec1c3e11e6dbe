/*
Package cli facilitates building command-line applications that talk to the DroneMobile API. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing the account password in an
OS-dependent credential store, so that scripts do not need to pass it on the command line.

# Examples

	import flag

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for email, credentials, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	config.LoadCredentials()          // Prompt for keyring password if needed

	acct, car, err := config.Connect(ctx)
	if err != nil {
		panic(err)
	}

The car is nil unless a vehicle ID was provided; account-level operations only need acct.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"os"
	"sort"
	"strings"

	"github.com/firstech/drone-command/internal/log"
	"github.com/firstech/drone-command/pkg/account"
	"github.com/firstech/drone-command/pkg/vehicle"

	"github.com/99designs/keyring"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvDroneEmail          = "DRONE_EMAIL"
	EnvDronePassword       = "DRONE_PASSWORD"
	EnvDroneCredentialName = "DRONE_CREDENTIAL_NAME"
	EnvDroneTokenDir       = "DRONE_TOKEN_DIR"
	EnvDroneVehicleID      = "DRONE_VEHICLE_ID"
	EnvDroneKeyringType    = "DRONE_KEYRING_TYPE"
	EnvDroneKeyringPass    = "DRONE_KEYRING_PASSWORD"
	EnvDroneKeyringPath    = "DRONE_KEYRING_PATH"
	EnvDroneKeyringDebug   = "DRONE_KEYRING_DEBUG"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagAccount Flag = 1 // Enable account credential options. Required for all API calls.
	FlagVehicle Flag = 2 // Enable vehicle selection options.
	FlagAll     Flag = FlagAccount | FlagVehicle
)

var (
	ErrNoCredentials = errors.New("account email not provided")
	ErrNoPassword    = errors.New("account password not available")
	ErrKeyNotFound   = keyring.ErrKeyNotFound
)

// Config fields determine how a client authenticates to the DroneMobile backend.
type Config struct {
	Flags Flag // Controls which set of environment variables/CLI flags to use.

	Email          string
	CredentialName string // Name for the account password entry in the system keyring
	TokenDir       string // Directory for cached API tokens
	VehicleID      string
	Backend        keyring.Config
	BackendType    backendType
	Debug          bool // Enable keyring debug messages

	keyringPassword *string
	accountPassword string
	acct            *account.Account
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getKeyringPassword
	c.Backend.FilePasswordFunc = c.getKeyringPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagAccount) {
		flag.StringVar(&c.Email, "email", "", "DroneMobile account `email`. Defaults to $DRONE_EMAIL.")
		flag.StringVar(&c.CredentialName, "credential-name", "", "System keyring `name` for the account password. Defaults to $DRONE_CREDENTIAL_NAME.")
		flag.StringVar(&c.TokenDir, "token-dir", "", "`Directory` for cached API tokens. Defaults to $DRONE_TOKEN_DIR.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $DRONE_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
	if c.Flags.isSet(FlagVehicle) {
		flag.StringVar(&c.VehicleID, "vehicle-id", "", "Vehicle `ID` to target. Defaults to $DRONE_VEHICLE_ID.")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagAccount) {
		if c.Email == "" {
			c.Email = os.Getenv(EnvDroneEmail)
			log.Debug("Set email to '%s'", c.Email)
		}
		if c.CredentialName == "" {
			c.CredentialName = os.Getenv(EnvDroneCredentialName)
			log.Debug("Set credential name to '%s'", c.CredentialName)
		}
		if c.TokenDir == "" {
			c.TokenDir = os.Getenv(EnvDroneTokenDir)
			log.Debug("Set token directory to '%s'", c.TokenDir)
		}
		if c.accountPassword == "" {
			c.accountPassword = os.Getenv(EnvDronePassword)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvDroneKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.keyringPassword == nil {
			password := os.Getenv(EnvDroneKeyringPass)
			c.keyringPassword = &password
			if len(password) > 0 {
				log.Debug("Set keyring password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvDroneKeyringPath)
			log.Debug("Set keyring file path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvDroneKeyringDebug)
			log.Debug("Set keyring debug logging to '%v'", c.Debug)
		}
	}
	if c.Flags.isSet(FlagVehicle) {
		if c.VehicleID == "" {
			c.VehicleID = os.Getenv(EnvDroneVehicleID)
			log.Debug("Set vehicle ID to '%s'", c.VehicleID)
		}
	}
}

// LoadCredentials resolves the account password, opening the keyring if needed. Call this method
// before [Config.Connect] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if !c.Flags.isSet(FlagAccount) {
		return nil
	}
	_, err := c.password()
	return err
}

func (c *Config) password() (string, error) {
	if c.accountPassword != "" {
		return c.accountPassword, nil
	}
	if c.CredentialName == "" {
		return "", ErrNoPassword
	}
	password, err := c.LoadPasswordFromKeyring()
	if err != nil {
		return "", err
	}
	c.accountPassword = password
	return password, nil
}

// Account logs into and returns the configured DroneMobile account.
func (c *Config) Account() (*account.Account, error) {
	if c.acct != nil {
		return c.acct, nil
	}
	if c.Email == "" {
		return nil, ErrNoCredentials
	}
	password, err := c.password()
	if err != nil {
		return nil, err
	}
	acct, err := account.New(c.Email, password, c.TokenDir, "")
	if err != nil {
		return nil, err
	}
	c.acct = acct
	return acct, nil
}

// Connect returns the configured account and, if a vehicle ID was provided, the corresponding
// vehicle. Fetching the vehicle verifies the credentials with a round trip to the API.
func (c *Config) Connect(ctx context.Context) (acct *account.Account, car *vehicle.Vehicle, err error) {
	acct, err = c.Account()
	if err != nil {
		return nil, nil, err
	}
	if c.Flags.isSet(FlagVehicle) && c.VehicleID != "" {
		car, err = acct.Vehicle(ctx, c.VehicleID)
		if err != nil {
			return nil, nil, err
		}
	}
	return acct, car, nil
}
