package main

import (
	"context"
	"errors"

	"wakealert/internal/transport"
)

// offlineAdapter keeps inspection commands off the broker.
type offlineAdapter struct{}

var errOffline = errors.New("push transport is offline")

func (offlineAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (offlineAdapter) Stop(context.Context) error                           { return nil }
func (offlineAdapter) Publish(context.Context, string, any) error           { return errOffline }
