package hardware

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo 串口设备信息
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// 测试替换点
var getDetailedPortsList = enumerator.GetDetailedPortsList

// ListPorts 列出系统中的串口设备，按名称排序
func ListPorts() ([]PortInfo, error) {
	details, err := getDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("枚举串口失败: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
