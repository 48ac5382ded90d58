package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Decode turns provider bytes into a clip. WAV (RIFF) and MP3 are accepted.
func Decode(data []byte) (*Clip, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes is not audio", ErrDecode, len(data))
	}
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return decodeWAV(data)
	}
	return decodeMP3(data)
}

func decodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read wav: %v", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("%w: wav without format", ErrDecode)
	}
	format := Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: wav format %s", ErrDecode, format)
	}
	samples := make([]int16, len(buf.Data))
	depth := int(dec.BitDepth)
	for i, v := range buf.Data {
		switch depth {
		case 8:
			samples[i] = int16((v - 128) << 8)
		case 16:
			samples[i] = int16(v)
		case 24:
			samples[i] = int16(v >> 8)
		case 32:
			samples[i] = int16(v >> 16)
		default:
			return nil, fmt.Errorf("%w: unsupported wav bit depth %d", ErrDecode, depth)
		}
	}
	return &Clip{Format: format, Samples: samples}, nil
}

func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 stream: %v", ErrDecode, err)
	}
	if len(pcm) < 4 {
		return nil, fmt.Errorf("%w: mp3 holds no frames", ErrDecode)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	if len(samples)%2 != 0 {
		samples = samples[:len(samples)-1]
	}
	return &Clip{Format: Format{SampleRate: dec.SampleRate(), Channels: 2}, Samples: samples}, nil
}
