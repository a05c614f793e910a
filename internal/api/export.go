package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clore-watch/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportSnapshots writes the user's recent server snapshots as an xlsx
// workbook. Default window is 24 hours, overridable with ?hours=.
func (h *APIHandler) ExportSnapshots(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	hours := 24
	if v := c.Query("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		hours = n
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	snapshots, err := h.store.Snapshots.RecentForUser(user.ID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := buildSnapshotWorkbook(snapshots)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("snapshots_%d_%s.xlsx", user.ID, time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		wsLogger.Printf("snapshot export write failed: %v", err)
	}
}

func buildSnapshotWorkbook(snapshots []models.ServerSnapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Snapshots"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Timestamp", "Kind", "Server ID", "GPU Model", "GPU Count", "GPU RAM (GB)",
		"CPU Model", "RAM (GB)", "Price (CLORE/day)", "Price (USD/day)", "Price Source",
		"Rented", "Online", "Location", "Reliability", "Rating", "Ratings",
	}
	for i, hdr := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, hdr); err != nil {
			return nil, err
		}
	}

	for row, snap := range snapshots {
		values := []interface{}{
			snap.Timestamp.Format("2006-01-02 15:04:05"),
			snap.Kind,
			snap.ServerID,
			snap.GPUModel,
			snap.GPUCount,
			snap.GPURAM,
			snap.CPUModel,
			snap.RAMGB,
			snap.PriceClore,
			snap.PriceUSD,
			snap.PriceSource,
			snap.IsRented,
			snap.IsOnline,
			snap.Location,
			snap.Reliability,
			snap.Rating,
			snap.RatingCount,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
