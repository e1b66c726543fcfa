package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/atinyakov/mindease/internal/client"
)

var (
	version   string
	buildDate string
)

const requestTimeout = 15 * time.Second

// repl runs the interactive shell loop, accepting account commands.
func repl(c *client.Client, scanner *bufio.Scanner, prompter *client.Prompter) {
	for {
		fmt.Print("mindease> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(args) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, signup, login, logout, me, exit")
		case "signup", "login":
			username, password, err := prompter.Credentials()
			if err != nil {
				fmt.Println(err)
				break
			}
			auth := c.Login
			if args[0] == "signup" {
				auth = c.Signup
			}
			user, err := auth(ctx, username, password)
			if err != nil {
				fmt.Println("Error:", err)
				break
			}
			fmt.Printf("Logged in as %s (%s)\n", user.Username, user.ID)
		case "logout":
			if err := c.Logout(ctx); err != nil {
				fmt.Println("Error:", err)
				break
			}
			fmt.Println("Logged out")
		case "me":
			user, err := c.Me(ctx)
			if err != nil {
				fmt.Println("Error:", err)
				break
			}
			fmt.Printf("%s (%s)\n", user.Username, user.ID)
		case "exit":
			cancel()
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
		cancel()
	}
}

// main parses command-line flags and starts the shell.
func main() {
	var (
		baseURL string
		caFile  string
		showVer bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&caFile, "ca", "", "path to CA cert for HTTPS servers")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("MindEase Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	c, err := client.New(baseURL, caFile)
	if err != nil {
		log.Fatal(err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	prompter := &client.Prompter{In: scanner, Out: os.Stdout}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		prompter.ReadPassword = func() ([]byte, error) { return term.ReadPassword(fd) }
	}

	repl(c, scanner, prompter)
}
