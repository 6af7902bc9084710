package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	updater "github.com/danarchy85/dns-updater"
)

var (
	yes = regexp.MustCompile(`(?i)^y(es)?$`)
	no  = regexp.MustCompile(`(?i)^n(o)?$`)
)

// runSetup walks through creating a configuration and writes it to path.
func runSetup(path string) error {
	cfg, err := promptConfig(bufio.NewReader(os.Stdin), os.Stdout, readToken)
	if err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	fmt.Printf("File saved to: %s!\n", path)
	return nil
}

// promptConfig asks for accounts until the user declines another, then for confirmation.
func promptConfig(in *bufio.Reader, out io.Writer, token func(*bufio.Reader, io.Writer) (string, error)) (*updater.Config, error) {
	fmt.Fprintln(out, "Configuration not found. Creating a new one!")
	fmt.Fprintln(out, "Only A records are supported at this time.")

	cfg := updater.DefaultConfig()
	for {
		conn, err := promptConnection(in, out, token)
		if err != nil {
			return nil, err
		}
		cfg.Connections = append(cfg.Connections, conn)

		answer, err := prompt(in, out, "Do you need to add another Cloudflare account/API token? (Y/N): ")
		if err != nil {
			return nil, err
		}
		if no.MatchString(answer) {
			break
		}
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Final configuration:\n%s\n", b)
	answer, err := prompt(in, out, "Does the above configuration look correct?: (Y/N): ")
	if err != nil {
		return nil, err
	}
	if !yes.MatchString(answer) {
		return nil, errors.New("not writing configuration file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func promptConnection(in *bufio.Reader, out io.Writer, token func(*bufio.Reader, io.Writer) (string, error)) (updater.Connection, error) {
	key, err := token(in, out)
	if err != nil {
		return updater.Connection{}, err
	}
	if key == "" {
		return updater.Connection{}, errors.New("API token cannot be empty")
	}
	line, err := prompt(in, out, "\nEnter domains to manage separated by commas:\nEx: domain1.tld,domain2.tld: ")
	if err != nil {
		return updater.Connection{}, err
	}

	conn := updater.Connection{Credential: key}
	width := 0
	for _, d := range strings.Split(line, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		conn.Domains = append(conn.Domains, updater.Domain{Name: d, Type: updater.TypeA})
		if len(d) > width {
			width = len(d)
		}
	}
	for _, d := range conn.Domains {
		fmt.Fprintf(out, "Added:  %-*s => type: %s\n", width, d.Name, d.Type)
	}
	return conn, nil
}

// readToken reads the API token without echo when stdin is a terminal.
func readToken(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter your Cloudflare API token: ")
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(in)
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("error reading from stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func prompt(in *bufio.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("error reading from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
