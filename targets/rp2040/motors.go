//go:build rp2040 || rp2350

package main

import (
	"machine"

	"tinygo.org/x/drivers/l293x"

	"sonarbot/core"
	"sonarbot/robot"
)

// l293xMotor drives one L293 channel through the tinygo driver.
type l293xMotor struct {
	dev l293x.Device
}

func newMotor(enable, positive, negative core.GPIOPin) *l293xMotor {
	m := &l293xMotor{dev: l293x.New(machine.Pin(positive), machine.Pin(negative), machine.Pin(enable))}
	m.dev.Configure()
	return m
}

func (m *l293xMotor) Forward() error {
	m.dev.Forward()
	return nil
}

func (m *l293xMotor) Backward() error {
	m.dev.Backward()
	return nil
}

func (m *l293xMotor) Stop() error {
	m.dev.Stop()
	return nil
}

var _ robot.Motor = (*l293xMotor)(nil)
