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

	"github.com/lindb/common/pkg/ltoml"
	"github.com/spf13/cobra"

	"github.com/specter-sim/specter/config"
	"github.com/specter-sim/specter/internal/simulation"
	"github.com/specter-sim/specter/pkg/logger"
)

const (
	currentDir     = "./"
	specterCfgName = "specter.toml"
	// defaultSpecterCfgFile defines the default config file path
	defaultSpecterCfgFile = currentDir + specterCfgName
)

var cfg = ""

// newRunCmd returns the simulation run command group.
func newRunCmd() *cobra.Command {
	runGroup := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
	}
	runGroup.AddCommand(
		runSimulationCmd,
		initializeConfigCmd,
	)
	runSimulationCmd.PersistentFlags().StringVar(&cfg, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultSpecterCfgFile))
	return runGroup
}

var runSimulationCmd = &cobra.Command{
	Use:   "simulation",
	Short: "run the configured simulation",
	RunE:  serveSimulation,
}

// initializeConfigCmd initializes the config file for run
var initializeConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "create a new default config",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfg
		if path == "" {
			path = defaultSpecterCfgFile
		}
		if err := checkExistenceOf(path); err != nil {
			return err
		}
		return ltoml.WriteConfig(path, config.NewDefaultSpecterTOML())
	},
}

func serveSimulation(_ *cobra.Command, _ []string) error {
	specterCfg := config.Specter{}
	if err := config.LoadAndSetSpecterConfig(cfg, defaultSpecterCfgFile, &specterCfg); err != nil {
		return err
	}

	level, err := logger.ParseLevel(specterCfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := logger.Init(level, nil, nil, nil); err != nil {
		return fmt.Errorf("init logger error: %s", err)
	}
	logger.SetBufferingEnabled(specterCfg.Logging.Buffering)

	engine, err := simulation.NewEngine(&specterCfg, nil, nil)
	if err != nil {
		return err
	}
	return engine.Run()
}

// checkExistenceOf fails when the target config file already exists.
func checkExistenceOf(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	return nil
}
