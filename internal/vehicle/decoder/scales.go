package decoder

// hvTempBreakpoints is the ten-segment piecewise-linear raw-to-Celsius
// transform for HV/LV battery temperature responses, modeling a typical
// NTC-thermistor raw-ADC curve shared by every supported platform's
// temperature DIDs.
var hvTempBreakpoints = []breakpoint{
	{rawFrom: 0, rawTo: 20, physFrom: -40, physTo: -20},
	{rawFrom: 20, rawTo: 40, physFrom: -20, physTo: -10},
	{rawFrom: 40, rawTo: 70, physFrom: -10, physTo: 0},
	{rawFrom: 70, rawTo: 100, physFrom: 0, physTo: 10},
	{rawFrom: 100, rawTo: 140, physFrom: 10, physTo: 20},
	{rawFrom: 140, rawTo: 170, physFrom: 20, physTo: 30},
	{rawFrom: 170, rawTo: 200, physFrom: 30, physTo: 40},
	{rawFrom: 200, rawTo: 220, physFrom: 40, physTo: 50},
	{rawFrom: 220, rawTo: 240, physFrom: 50, physTo: 60},
	{rawFrom: 240, rawTo: 255, physFrom: 60, physTo: 80},
}
