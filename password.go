// Copyright 2016 The Sandpass Authors
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
	"fmt"
	"os"

	"golang.org/x/term"
)

// passwordEnvVar names the environment variable that overrides the prompt.
const passwordEnvVar = "KDBXDUMP_PASSWORD"

// readPassword returns the database password from the environment or,
// failing that, from an echo-free prompt on the terminal.
func readPassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(passwordEnvVar); ok {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// Standard input may be the database itself; ask the controlling terminal.
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return "", fmt.Errorf("no terminal for password prompt; set %s", passwordEnvVar)
		}
		defer tty.Close()
		fd = int(tty.Fd())
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %v", err)
	}
	s := string(pw)
	for i := range pw {
		pw[i] = 0
	}
	return s, nil
}
