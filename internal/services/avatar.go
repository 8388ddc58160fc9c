package services

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image/color"
	"image/png"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gcs"
	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

// AvatarService renders a deterministic initials avatar for a new author and
// uploads it to the bucket. Optional: with no bucket configured the user just
// has no avatar.
type AvatarService interface {
	CreateAndUploadUserAvatar(ctx context.Context, user *domain.User) error
}

type avatarService struct {
	log    *logger.Logger
	bucket gcs.BucketService
}

const avatarSize = 256

// Background palette, picked by a hash of the user id so the same author
// always gets the same color.
var avatarPalette = []color.RGBA{
	{R: 0x5B, G: 0x8D, B: 0xEF, A: 0xFF},
	{R: 0xEF, G: 0x76, B: 0x5B, A: 0xFF},
	{R: 0x57, G: 0xB8, B: 0x94, A: 0xFF},
	{R: 0xB3, G: 0x6B, B: 0xD4, A: 0xFF},
	{R: 0xE8, G: 0xA8, B: 0x3C, A: 0xFF},
	{R: 0x4F, G: 0xAE, B: 0xC9, A: 0xFF},
}

func NewAvatarService(log *logger.Logger, bucket gcs.BucketService) AvatarService {
	return &avatarService{
		log:    log.With("service", "AvatarService"),
		bucket: bucket,
	}
}

func (as *avatarService) CreateAndUploadUserAvatar(ctx context.Context, user *domain.User) error {
	if as.bucket == nil {
		as.log.Debug("No bucket configured, skipping avatar", "user_id", user.ID)
		return nil
	}

	img, err := renderInitialsAvatar(initialsOf(user), paletteIndex(user.ID.String()))
	if err != nil {
		return fmt.Errorf("render avatar: %w", err)
	}

	key := fmt.Sprintf("avatars/%s.png", user.ID)
	if err := as.bucket.UploadFile(ctx, key, bytes.NewReader(img)); err != nil {
		return fmt.Errorf("upload avatar %q: %w", key, err)
	}

	user.AvatarBucketKey = key
	user.AvatarURL = as.bucket.GetPublicURL(key)
	return nil
}

func initialsOf(user *domain.User) string {
	var b strings.Builder
	if f := strings.TrimSpace(user.FirstName); f != "" {
		b.WriteString(strings.ToUpper(f[:1]))
	}
	if l := strings.TrimSpace(user.LastName); l != "" {
		b.WriteString(strings.ToUpper(l[:1]))
	}
	if b.Len() == 0 {
		if e := strings.TrimSpace(user.Email); e != "" {
			return strings.ToUpper(e[:1])
		}
		return "?"
	}
	return b.String()
}

func paletteIndex(seed string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return int(h.Sum32() % uint32(len(avatarPalette)))
}

func renderInitialsAvatar(initials string, palette int) ([]byte, error) {
	dc := gg.NewContext(avatarSize, avatarSize)

	bg := avatarPalette[palette]
	dc.SetColor(bg)
	dc.Clear()

	ft, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face := truetype.NewFace(ft, &truetype.Options{
		Size:    avatarSize * 0.42,
		Hinting: font.HintingFull,
	})
	dc.SetFontFace(face)

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(initials, avatarSize/2, avatarSize/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
