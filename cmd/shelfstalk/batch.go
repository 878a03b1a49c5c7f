package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// loadBatchFile reads a YAML jobs file.
func loadBatchFile(path string) (*batchFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var file batchFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}
	if len(file.Jobs) == 0 {
		return nil, fmt.Errorf("jobs file %s defines no jobs", path)
	}
	for i, j := range file.Jobs {
		if j.URL == "" || j.Goal == "" {
			return nil, fmt.Errorf("job %d: url and goal are required", i+1)
		}
	}
	return &file, nil
}
