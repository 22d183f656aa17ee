// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/circles-chat/circles/session/matrix"
)

const usage = `Usage: %s

Logs in to a homeserver and prints the session block for circles.yaml.

Example:

	# ask for the password
	%s -homeserver https://matrix.example.org -username alice
	# read password from stdin
	%s -homeserver https://matrix.example.org -username alice -passwordstdin < my.pass

Arguments:

`

var (
	homeserver = flag.String("homeserver", "", "The base URL of the homeserver, e.g. https://matrix.example.org")
	username   = flag.String("username", "", "The username or full user ID to log in as")
	deviceID   = flag.String("device-id", "", "Reuse an existing device ID (optional)")
	pwdFile    = flag.String("passwordfile", "", "The file to read the password from")
	pwdStdin   = flag.Bool("passwordstdin", false, "Reads the password from stdin")
)

type sessionBlock struct {
	Session struct {
		HomeserverURL string `yaml:"homeserver_url"`
		UserID        string `yaml:"user_id"`
		AccessToken   string `yaml:"access_token"`
		DeviceID      string `yaml:"device_id"`
	} `yaml:"session"`
}

func main() {
	name := os.Args[0]
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, usage, name, name, name)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *homeserver == "" || *username == "" {
		flag.Usage()
		os.Exit(1)
	}

	pass, err := getPassword(*pwdFile, *pwdStdin, os.Stdin)
	if err != nil {
		logrus.Fatalln(err)
	}

	res, err := matrix.Login(*homeserver, *username, pass, *deviceID)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to log in")
	}

	var out sessionBlock
	out.Session.HomeserverURL = *homeserver
	out.Session.UserID = res.UserID
	out.Session.AccessToken = res.AccessToken
	out.Session.DeviceID = res.DeviceID
	b, err := yaml.Marshal(out)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to encode session")
	}
	fmt.Print(string(b))
}

func getPassword(pwdFile string, pwdStdin bool, r io.Reader) (string, error) {
	// read password from file
	if pwdFile != "" {
		pw, err := os.ReadFile(pwdFile)
		if err != nil {
			return "", fmt.Errorf("unable to read password from file: %w", err)
		}
		return strings.TrimSpace(string(pw)), nil
	}

	// read password from stdin
	if pwdStdin {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("unable to read password from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("unable to read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Enter Password: ")
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("unable to read password: %w", err)
	}
	return string(bytePassword), nil
}
