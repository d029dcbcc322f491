package service

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/models"
)

func TestParseScheduledTimeConvertsToUTCOnce(t *testing.T) {
	// 23:00 wall clock in UTC+5:30 is 17:30 UTC.
	got, err := parseScheduledTime("2025-01-10T23:00", "Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseScheduledTimeDefaultsToUTC(t *testing.T) {
	got, err := parseScheduledTime("2025-01-10T23:00", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC), got)
}

func TestParseScheduledTimeRejectsBadInput(t *testing.T) {
	_, err := parseScheduledTime("2025-01-10T23:00", "Mars/Olympus_Mons")
	assert.Error(t, err)

	_, err = parseScheduledTime("10-01-2025 23:00", "Asia/Kolkata")
	assert.Error(t, err)
}

func TestInferPostType(t *testing.T) {
	files := func(n int) []*multipart.FileHeader {
		out := make([]*multipart.FileHeader, n)
		for i := range out {
			out[i] = &multipart.FileHeader{}
		}
		return out
	}

	assert.Equal(t, models.PostTypeReel, inferPostType(models.PostTypeReel, files(1)))
	assert.Equal(t, models.PostTypeText, inferPostType("", nil))
	assert.Equal(t, models.PostTypeImage, inferPostType("", files(1)))
	assert.Equal(t, models.PostTypeCarousel, inferPostType("", files(3)))
}

func TestImageDimensionsFromHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	w, h := imageDimensions("image/png", buf.Bytes())
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
}

func TestImageDimensionsSkipsNonImages(t *testing.T) {
	w, h := imageDimensions("video/mp4", []byte{0x00, 0x00, 0x00, 0x18})
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)

	// Corrupt image bytes degrade to zero instead of failing the upload.
	w, h = imageDimensions("image/png", []byte("not a png"))
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}
