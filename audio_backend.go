// audio_backend.go - host audio output backed by oto: a context and
// player pull mixed stereo frames straight from the sound chip via its
// io.Reader implementation.
package main

import (
	"fmt"

	"github.com/ebitengine/oto/v3"
)

type AudioBackend struct {
	ctx    *oto.Context
	player *oto.Player
}

func NewAudioBackend(chip *SoundChip) (*AudioBackend, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   soundSampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create context: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(chip)
	player.Play()

	return &AudioBackend{ctx: ctx, player: player}, nil
}

func (a *AudioBackend) Close() error {
	if a.player != nil {
		a.player.Pause()
		return a.player.Close()
	}
	return nil
}
