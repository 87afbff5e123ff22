package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"alphasniper/src/model"
	"alphasniper/src/repository"
)

// runControlConsumer polls the command queue and applies operator
// directives within the 1-3s latency contract. Commands are delivered
// at-least-once; every apply path is idempotent.
func (e *Engine) runControlConsumer(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ControlPoll())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				cmd, err := e.commands.ClaimNextNew(ctx)
				if err != nil {
					logger.WithError(err).Error("Control consumer: claim failed")
					break
				}
				if cmd == nil {
					break
				}
				e.applyCommand(ctx, cmd)
			}
		}
	}
}

func (e *Engine) applyCommand(ctx context.Context, cmd *model.ControlCommand) {
	logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"command":  cmd.Command,
		"actor":    cmd.Actor,
		"trace_id": cmd.TraceID,
		"id":       cmd.ID,
	}).Info("Applying control command")

	var err error
	switch cmd.Command {
	case model.CommandHalt:
		err = e.writeHalt(ctx, cmd, true, model.ReasonAdminHalt)
	case model.CommandResume:
		err = e.writeHalt(ctx, cmd, false, model.ReasonAdminResume)
	case model.CommandEmergencyExit:
		err = e.applyEmergencyExit(ctx, cmd)
	case model.CommandConfigSet:
		err = e.applyConfigSet(ctx, cmd)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Command)
	}

	if err != nil {
		logger.WithError(err).WithField("id", cmd.ID).Error("Control command failed")
		if _, markErr := e.commands.MarkError(ctx, cmd.ID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("Failed to mark command ERROR")
		}
		return
	}

	if err := e.refreshState(ctx); err != nil {
		logger.WithError(err).Error("Control consumer: state refresh failed")
	}

	if _, err := e.commands.MarkProcessed(ctx, cmd.ID); err != nil {
		logger.WithError(err).Error("Failed to mark command PROCESSED")
	}
}

func (e *Engine) writeHalt(ctx context.Context, cmd *model.ControlCommand, halt bool, reasonCode string) error {
	value := "false"
	if halt {
		value = "true"
	}
	return e.configs.Write(ctx, repository.WriteInput{
		Actor:      cmd.Actor,
		Key:        model.ConfigKeyHaltTrading,
		Value:      value,
		TraceID:    cmd.TraceID,
		ReasonCode: reasonCode,
		Reason:     cmd.Reason,
	})
}

// applyEmergencyExit asserts HALT and closes every open position at
// market. Re-delivery is harmless: already-closed positions are gone from
// the open set and the exit order ids are idempotent.
func (e *Engine) applyEmergencyExit(ctx context.Context, cmd *model.ControlCommand) error {
	if err := e.configs.Write(ctx, repository.WriteInput{
		Actor:      cmd.Actor,
		Key:        model.ConfigKeyHaltTrading,
		Value:      "true",
		TraceID:    cmd.TraceID,
		ReasonCode: model.ReasonEmergencyExit,
		Reason:     cmd.Reason,
	}); err != nil {
		return err
	}

	trades, err := e.trades.FindAllOpen(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range trades {
		trade := trades[i]
		reason := fmt.Sprintf("emergency exit by %s", cmd.Actor)
		if err := e.closePositionMarket(ctx, &trade, cmd.TraceID, model.ReasonEmergencyExit, reason); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	e.notifier.SendSystemAlert("EMERGENCY_EXIT", cmd.TraceID, map[string]string{
		"actor":     cmd.Actor,
		"positions": fmt.Sprintf("%d", len(trades)),
	})

	return firstErr
}

// applyConfigSet updates one system_config key from the command payload.
func (e *Engine) applyConfigSet(ctx context.Context, cmd *model.ControlCommand) error {
	var payload struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(cmd.Payload), &payload); err != nil {
		return fmt.Errorf("decode config payload: %w", err)
	}
	if payload.Key == "" {
		return fmt.Errorf("config payload missing key")
	}

	return e.configs.Write(ctx, repository.WriteInput{
		Actor:      cmd.Actor,
		Key:        payload.Key,
		Value:      payload.Value,
		TraceID:    cmd.TraceID,
		ReasonCode: model.ReasonAdminConfig,
		Reason:     cmd.Reason,
	})
}
