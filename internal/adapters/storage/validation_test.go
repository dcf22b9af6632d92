package storage

import (
	"context"
	"testing"

	"claims_backend/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	got, err := CleanPath("claims/farmer-1/./photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "claims/farmer-1/photo.jpg", got)

	for _, bad := range []string{"", "/etc/passwd", "../secret.pdf", "a/../../b.pdf", `claims\photo.jpg`} {
		_, err := CleanPath(bad)
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidFile), bad)
	}
}

func TestValidateContentTypePerKind(t *testing.T) {
	assert.NoError(t, ValidateContentType("image/jpeg", KindImage))
	assert.NoError(t, ValidateContentType("application/pdf; charset=binary", KindDocument))
	assert.Error(t, ValidateContentType("application/pdf", KindImage))
	assert.Error(t, ValidateContentType("video/mp4", KindDocument))
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize(10, 100))
	assert.Error(t, ValidateFileSize(0, 100))
	assert.Error(t, ValidateFileSize(101, 100))
	assert.NoError(t, ValidateFileSize(101, 0))
}

func TestPathValidatorInfersContentType(t *testing.T) {
	info, err := PathValidator{}.Validate(context.Background(), "claims/f1/field.PNG", KindImage)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)

	_, err = PathValidator{}.Validate(context.Background(), "claims/f1/report.pdf", KindImage)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidFile))
}

func TestUpstreamScannerIsClean(t *testing.T) {
	res, err := UpstreamScanner{}.Scan(context.Background(), "claims/f1/field.png")
	require.NoError(t, err)
	assert.Equal(t, VerdictClean, res.Verdict)
}
