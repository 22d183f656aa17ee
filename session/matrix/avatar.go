package matrix

import (
	"bytes"
	"encoding/json"
	"image"

	// Imported for gif codec
	_ "image/gif"
	"image/jpeg"

	// Imported for png codec
	_ "image/png"

	// Imported for webp codec
	_ "golang.org/x/image/webp"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/circles-chat/circles/session/api"
)

// ScaleAvatar shrinks the avatar to fit within maxSize x maxSize, keeping
// its aspect ratio, and re-encodes it as JPEG. Avatars that already fit are
// returned unchanged.
func ScaleAvatar(avatar *api.Avatar, maxSize uint) (*api.Avatar, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(avatar.Data))
	if err != nil {
		return nil, errors.Wrap(err, "image.DecodeConfig")
	}
	if uint(cfg.Width) <= maxSize && uint(cfg.Height) <= maxSize {
		return avatar, nil
	}
	img, _, err := image.Decode(bytes.NewReader(avatar.Data))
	if err != nil {
		return nil, errors.Wrap(err, "image.Decode")
	}
	scaled := resize.Thumbnail(maxSize, maxSize, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85}); err != nil {
		return nil, errors.Wrap(err, "jpeg.Encode")
	}
	return &api.Avatar{
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}

// avatarContent builds the m.room.avatar content for an uploaded avatar.
func avatarContent(contentURI string, avatar *api.Avatar) (json.RawMessage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(avatar.Data))
	if err != nil {
		return nil, errors.Wrap(err, "image.DecodeConfig")
	}
	content := []byte(`{}`)
	for _, field := range []struct {
		path  string
		value interface{}
	}{
		{"url", contentURI},
		{"info.mimetype", avatar.ContentType},
		{"info.size", len(avatar.Data)},
		{"info.w", cfg.Width},
		{"info.h", cfg.Height},
	} {
		if content, err = sjson.SetBytes(content, field.path, field.value); err != nil {
			return nil, errors.Wrapf(err, "sjson.SetBytes %s", field.path)
		}
	}
	return content, nil
}
