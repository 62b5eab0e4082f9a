package player

import (
	"context"
	"log"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/media"
)

// OnCommand implements media.CommandHandler for OS media controls
func (c *Controller) OnCommand(cmd media.Command, data interface{}) error {
	// Seek arrives often while the OS syncs position
	if cmd != media.CmdSeek {
		log.Printf("[PLAYER] Received OS media command: %s", cmd)
	}

	ctx := context.Background()
	switch cmd {
	case media.CmdPlay:
		return c.Resume(ctx)
	case media.CmdPause:
		return c.Pause()
	case media.CmdPlayPause:
		return c.Toggle(ctx)
	case media.CmdStop:
		return c.Stop()
	case media.CmdNext:
		return c.Next(ctx)
	case media.CmdPrevious:
		return c.Previous(ctx)
	case media.CmdSeek:
		if pos, ok := data.(time.Duration); ok {
			return c.Seek(pos.Seconds())
		}
	}
	return nil
}
