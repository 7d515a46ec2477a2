package controller

import "errors"

var (
	// ErrUnknownWorker indicates a message referenced a worker the controller
	// never registered. Heartbeats from unknown workers are logged as critical
	// anomalies but never crash the control loop.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrMissingSource indicates a coordination message arrived without a
	// source address.
	ErrMissingSource = errors.New("coordination message missing source address")

	// ErrMissingCallback indicates a register message arrived without the
	// callback address the controller should connect back to.
	ErrMissingCallback = errors.New("register message missing callback address")
)
