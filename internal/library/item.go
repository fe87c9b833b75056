// Package library holds the media item model and the pure functions that
// operate on a library snapshot: the ordered projection, the fractional-weight
// reorder engine and the cyclic cursor resolver.
package library

import (
	"path/filepath"
	"strings"
)

// Item is one entry of a library snapshot.
// Two items are the same logical entity iff Path and TimeStamp are equal.
type Item struct {
	Path string `json:"path"`
	// TimeStamp identifies a sub-item of time-coded media (a frame or clip of a video).
	TimeStamp *float64 `json:"time_stamp,omitempty"`
	// Weight is the manual order key used by the weight sort. Nil sorts lowest.
	Weight *float64 `json:"weight,omitempty"`
	// Elo is a ranking score; opaque here apart from the elo sort.
	Elo  *float64 `json:"elo,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// Key is the comparable identity of an Item.
type Key struct {
	Path     string
	Stamp    float64
	HasStamp bool
}

// KeyOf builds a Key from a path and optional time stamp.
func KeyOf(path string, stamp *float64) Key {
	k := Key{Path: path}
	if stamp != nil {
		k.Stamp = *stamp
		k.HasStamp = true
	}
	return k
}

// Key returns the item's identity.
func (it Item) Key() Key {
	return KeyOf(it.Path, it.TimeStamp)
}

// WeightOrZero returns the weight, reading a missing weight as 0.
func (it Item) WeightOrZero() float64 {
	if it.Weight == nil {
		return 0
	}
	return *it.Weight
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := Item{
		Path:      it.Path,
		TimeStamp: clonePtr(it.TimeStamp),
		Weight:    clonePtr(it.Weight),
		Elo:       clonePtr(it.Elo),
	}
	if it.Tags != nil {
		out.Tags = append([]string(nil), it.Tags...)
	}
	return out
}

// CloneItems deep-copies a slice of items. Nil stays nil.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// IndexOf returns the position of the item with the given key, or -1.
func IndexOf(items []Item, key Key) int {
	for i := range items {
		if items[i].Key() == key {
			return i
		}
	}
	return -1
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Kind is a coarse media type derived from the file extension.
type Kind string

const (
	KindAll   Kind = "all"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindOther Kind = "other"
)

var kindByExt = map[string]Kind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".webp": KindImage, ".bmp": KindImage, ".avif": KindImage, ".heic": KindImage,
	".tif": KindImage, ".tiff": KindImage, ".jfif": KindImage,
	".mp4": KindVideo, ".webm": KindVideo, ".mov": KindVideo, ".mkv": KindVideo,
	".avi": KindVideo, ".m4v": KindVideo, ".wmv": KindVideo, ".flv": KindVideo,
	".mp3": KindAudio, ".wav": KindAudio, ".flac": KindAudio, ".ogg": KindAudio,
	".m4a": KindAudio, ".aac": KindAudio, ".opus": KindAudio,
}

// KindOf classifies a path by extension.
func KindOf(path string) Kind {
	if k, ok := kindByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindOther
}
