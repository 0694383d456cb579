// Package logx is lampdial's logging front end over zerolog.
//
// Components log through a Named Logger ("board.rx", "timesource"), so one
// noisy component can be turned up on a running device without raising the
// whole process level. Console output is human-readable; the file sink is
// JSON so it can be shipped off the device.
package logx
