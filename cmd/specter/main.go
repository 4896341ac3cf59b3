// Licensed to Specter under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Specter licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/specter-sim/specter/config"
)

const specterLogo = `
 ___ _ __   ___  ___| |_ ___ _ __
/ __| '_ \ / _ \/ __| __/ _ \ '__|
\__ \ |_) |  __/ (__| ||  __/ |
|___/ .__/ \___|\___|\__\___|_|
    |_|
`

var rootCmd = &cobra.Command{
	Use:   "specter",
	Short: "specter is a discrete-event network simulator for real programs",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("specter %s%s\n", config.Version, specterLogo)
	},
}

func main() {
	rootCmd.AddCommand(
		versionCmd,
		newRunCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
