// Utility for storing account passwords in the system keyring

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/firstech/drone-command/pkg/cli"
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s [-credential-name name] [file]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Reads a DroneMobile account password from stdin or file and saves it under name")
	fmt.Fprintf(w, "in the system keyring. The name defaults to $%s.\n", cli.EnvDroneCredentialName)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Pass -delete to remove the entry instead.")
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	config, err := cli.NewConfig(cli.FlagAccount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		return
	}

	var remove bool
	flag.BoolVar(&remove, "delete", false, "Delete the keyring entry instead of writing it")
	flag.Usage = usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()

	if config.CredentialName == "" {
		fmt.Fprintf(os.Stderr, "Must provide system keyring name to save the password under using -credential-name or $%s\n", cli.EnvDroneCredentialName)
		return
	}

	if remove {
		if err := config.DeletePassword(); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting keyring entry: %s\n", err)
			return
		}
		returnCode = 0
		return
	}

	var password []byte
	switch flag.NArg() {
	case 0:
		password, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password from stdin: %s\n", err)
			return
		}
	case 1:
		password, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password from file: %s\n", err)
			return
		}
	default:
		fmt.Fprintln(os.Stderr, "Too many command-line arguments")
		return
	}

	if err := config.SavePasswordToKeyring(strings.TrimRight(string(password), "\r\n")); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving password to keyring: %s\n", err)
		return
	}

	returnCode = 0
}
