// Package kernel holds the per-neighborhood analyses run by the searchlight.
package kernel

import (
	"github.com/KyungWonPark/Searchlight/internal/config"
	"github.com/KyungWonPark/Searchlight/internal/searchlight"
	"github.com/pkg/errors"
)

// Lookup returns the kernel registered under name
func Lookup(name string) (searchlight.Kernel, error) {
	switch name {
	case config.KernelRSA:
		return CalcRSA, nil
	case config.KernelSVM:
		return CalcSVM, nil
	}
	return nil, errors.Errorf("unknown kernel %q", name)
}
