package main

import (
	"github.com/stellarlinkco/model-eval/internal/llm"
	"github.com/stellarlinkco/model-eval/internal/store"
)

// Seams for tests.
var (
	defaultProviderFromConfig = llm.DefaultProviderFromConfig
	newRegistryFromConfig     = llm.NewRegistryFromConfig
	openStore                 = store.Open
)
