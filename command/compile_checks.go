package command

import (
	"github.com/goliatone/go-appshell/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[PublishMessage]     = (*PublishCommand)(nil)
	_ gocmd.Commander[MergeConfigMessage] = (*MergeConfigCommand)(nil)
	_ gocmd.Commander[TrackEventMessage]  = (*TrackEventCommand)(nil)
	_ gocmd.Commander[LogErrorMessage]    = (*LogErrorCommand)(nil)

	_ Publisher    = (*core.Shell)(nil)
	_ ConfigMerger = (*core.Shell)(nil)
	_ EventSender  = (*core.Shell)(nil)
	_ ErrorLogger  = (*core.Shell)(nil)
)
