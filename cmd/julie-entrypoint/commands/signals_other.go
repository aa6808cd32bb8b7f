//go:build !unix

package commands

func ignoreBrokenPipe() {}
