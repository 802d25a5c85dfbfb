package main

import "testing"

func TestVersionCommandRegistered(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Use == "version" {
			if c.Run == nil {
				t.Error("version command has no Run")
			}
			return
		}
	}
	t.Fatal("version command not registered on root")
}
