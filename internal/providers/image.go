package providers

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// userMessageWithImages builds a multi-part user message carrying text
// plus one or more inline images, for vision calls like the style-guide
// bootstrap synthesis. Images are base64-encoded as data URIs since the
// caller only has raw bytes, not a hosted URL.
func userMessageWithImages(text string, images [][]byte) openai.ChatCompletionMessageParamUnion {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	if text != "" {
		parts = append(parts, openai.TextContentPart(text))
	}
	for _, img := range images {
		dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI,
		}))
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

// decodeImagePayload extracts raw image bytes from an OpenAI image
// response item, which returns either inline base64 or a fetchable URL
// depending on the backend.
func decodeImagePayload(img openai.Image) ([]byte, error) {
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode base64 image: %w", err)
		}
		return data, nil
	}
	if img.URL != "" {
		return fetchImageURL(img.URL)
	}
	return nil, fmt.Errorf("image response contained neither b64_json nor url")
}

func fetchImageURL(url string) ([]byte, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch generated image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	return data, nil
}
